package grant

import "fmt"

// Kind classifies a user-facing failure. Validation and not-found
// failures are never incidents; they are answered and forgotten.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindAuthorization
)

// ReplyError carries the exact text to send back to the requester.
// Anything that is not a ReplyError is an internal failure: the router
// logs it and answers with a generic apology instead.
type ReplyError struct {
	Kind Kind
	Text string
}

func (e *ReplyError) Error() string { return e.Text }

func errUnauthorized() error {
	// Deliberately vague: don't tell callers which tier they're missing.
	return &ReplyError{Kind: KindAuthorization, Text: "You are not allowed to use this command."}
}

func errUnknownUser(name string) error {
	return &ReplyError{
		Kind: KindNotFound,
		Text: fmt.Sprintf("Cannot find user by the display name or username of %s. Did you misspell it?", name),
	}
}

func errUnknownRole(name string) error {
	return &ReplyError{
		Kind: KindNotFound,
		Text: fmt.Sprintf("Cannot find role %s, did you type it correctly? If it has a space, wrap it in quotes.", name),
	}
}

func errDisallowedRole(allowed []string) error {
	if len(allowed) == 1 {
		return &ReplyError{
			Kind: KindValidation,
			Text: fmt.Sprintf("We only allow the `%s` role to be applied for now.", allowed[0]),
		}
	}
	return &ReplyError{Kind: KindValidation, Text: "That role cannot be granted temporarily."}
}

func errNotSelfService() error {
	return &ReplyError{Kind: KindValidation, Text: "The role provided is not a role that can be updated on your account."}
}

func errNotInGuild() error {
	return &ReplyError{Kind: KindNotFound, Text: "You do not belong to the guild."}
}

func errBadAmount() error {
	return &ReplyError{Kind: KindValidation, Text: "Your duration has to be a positive number. Send `.help` to the bot to see how to use this."}
}

func errBadUnit() error {
	return &ReplyError{Kind: KindValidation, Text: "Your time is an unknown type (should be min(s)/hour(s)/day(s)). Send `.help` to the bot to see how to use this."}
}
