package main

import "github.com/jrsteele09/go-advisor-auth/authstate"

const (
	red   = "\033[31m"
	green = "\033[32m"
	cyan  = "\033[36m"
	gray  = "\033[90m" // bright black

	resetColor = "\033[0m"
)

var levelColors = map[authstate.Level]string{
	authstate.LevelSuccess: green,
	authstate.LevelError:   red,
	authstate.LevelInfo:    cyan,
}
