package auth

import (
	apperrors "github.com/jrsteele09/go-advisor-auth/internal/errors"
	"github.com/jrsteele09/go-advisor-auth/provider"
)

const (
	msgInvalidEmail     = "بريد إلكتروني غير صحيح"
	msgWeakPassword     = "كلمة المرور ضعيفة: "
	msgWeakNewPassword  = "كلمة المرور الجديدة ضعيفة: "
	msgInvalidPhone     = "رقم جوال سعودي غير صحيح"
	msgShortName        = "الاسم يجب أن يكون حرفين على الأقل"
	msgRateLimited      = "تم تجاوز عدد المحاولات المسموح. حاول مرة أخرى خلال %d دقيقة"
	msgNotAuthenticated = "لم يتم تسجيل الدخول"
	msgUnexpected       = "حدث خطأ غير متوقع"
	msgSignUpFailed     = "فشل في إنشاء الحساب"
	msgProfileCreate    = "خطأ في إنشاء الملف الشخصي"
	msgSignInFailed     = "فشل في تسجيل الدخول"
	msgSignIn           = "خطأ في تسجيل الدخول"
	msgCallback         = "خطأ في معالجة تسجيل الدخول"
	msgSignOut          = "خطأ في تسجيل الخروج"
	msgSessionExpired   = "انتهت الجلسة، يرجى تسجيل الدخول مرة أخرى"
	msgProfileUpdate    = "خطأ في تحديث الملف الشخصي"
	msgChangePassword   = "خطأ في تغيير كلمة المرور"
	msgDeleteAccount    = "خطأ في حذف الحساب"
	defaultName         = "مستخدم جديد"
	defaultCity         = "الرياض"
)

var oauthNotConfigured = map[provider.OAuthProvider]string{
	provider.Google: "يرجى إعداد Supabase أولاً للتسجيل عبر Google",
	provider.Apple:  "يرجى إعداد Supabase أولاً للتسجيل عبر Apple",
}

var oauthFailed = map[provider.OAuthProvider]string{
	provider.Google: "خطأ في تسجيل الدخول عبر Google",
	provider.Apple:  "خطأ في تسجيل الدخول عبر Apple",
}

// providerMessages translates the identity backend's English messages.
var providerMessages = map[string]string{
	"Invalid login credentials":                "بيانات تسجيل الدخول غير صحيحة",
	"Email already registered":                 "هذا البريد الإلكتروني مسجل مسبقاً",
	"User already registered":                  "هذا البريد الإلكتروني مسجل مسبقاً",
	"Password should be at least 6 characters": "كلمة المرور يجب أن تكون 6 أحرف على الأقل",
	"Invalid email":                            "بريد إلكتروني غير صحيح",
	"Signup requires a valid password":         "كلمة المرور مطلوبة",
	"User not found":                           "المستخدم غير موجود",
	"Invalid password":                         "كلمة المرور غير صحيحة",
}

// dataMessages translates row store failures.
var dataMessages = []struct {
	err     error
	message string
}{
	{apperrors.ErrAlreadyExists, "البيانات موجودة مسبقاً"},
	{apperrors.ErrInvalidReference, "مرجع غير صحيح"},
	{apperrors.ErrForbidden, "ليس لديك صلاحية لهذا الإجراء"},
	{apperrors.ErrNotFound, "لم يتم العثور على البيانات"},
}

// LocalizeProviderMessage returns the Arabic text for a known provider message and the
// message itself otherwise.
func LocalizeProviderMessage(message string) string {
	if localized, ok := providerMessages[message]; ok {
		return localized
	}
	return message
}

func localizeDataError(err error) (string, bool) {
	for _, m := range dataMessages {
		if apperrors.Is(err, m.err) {
			return m.message, true
		}
	}
	return "", false
}
