package email

import "fmt"

// PasswordChanged renders the notice sent after a credential change.
func PasswordChanged(username string) (subject, body string) {
	return "Your password was changed",
		fmt.Sprintf("Hi %s,\n\nThe password for your account was just changed.\n"+
			"If you did not do this, reset your password immediately.\n", greetingName(username))
}

// AccountDeleted renders the notice sent after account deletion.
func AccountDeleted(username string) (subject, body string) {
	return "Your account was deleted",
		fmt.Sprintf("Hi %s,\n\nYour profile and favorites have been removed.\n"+
			"Thank you for using the catalog.\n", greetingName(username))
}

func greetingName(username string) string {
	if username == "" {
		return "there"
	}
	return username
}
