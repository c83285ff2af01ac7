package authstate

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a short message for the user about the outcome of an action.
type Notification struct {
	Level   Level
	Message string
}

type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to a Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

const (
	msgSignedUp        = "تم إنشاء حسابك بنجاح!"
	msgSignUpFailed    = "خطأ في إنشاء الحساب"
	msgSignedIn        = "تم تسجيل الدخول بنجاح!"
	msgSignInFailed    = "خطأ في تسجيل الدخول"
	msgSignedOut       = "تم تسجيل الخروج بنجاح"
	msgSignOutFailed   = "خطأ في تسجيل الخروج"
	msgProfileUpdated  = "تم تحديث الملف الشخصي"
	msgPasswordChanged = "تم تغيير كلمة المرور بنجاح"
	msgAccountDeleted  = "تم حذف الحساب بنجاح"
	msgLoadProfile     = "خطأ في تحميل بيانات المستخدم"
	msgUnexpected      = "حدث خطأ غير متوقع"
)

var msgOAuthRedirect = map[string]string{
	"google": "جاري تسجيل الدخول عبر Google...",
	"apple":  "جاري تسجيل الدخول عبر Apple...",
}
