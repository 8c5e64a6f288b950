package iam

// TokenFields exposes tokenFields to the external iam_test package.
var TokenFields = tokenFields
