package ecode

// Messages for request field and resource errors.

// FieldIsRequired reports a missing request field.
func FieldIsRequired(field string) string { return field + " is required" }

// FieldIsInvalid reports a request field with a bad value.
func FieldIsInvalid(field string) string { return field + " is invalid" }

// NotExist reports a missing resource.
func NotExist(what string) string { return what + " does not exist" }
