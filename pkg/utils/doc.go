// Package utils provides small, stateless helpers shared across packages.
//
// # Email Privacy
//
// Mask sensitive information when displaying to users or logging:
//
//	email := "john.doe@example.com"
//	masked := utils.MaskEmail(email)
//	// Output: "j***e@example.com"
//
// Use cases:
//   - Logging without exposing full contact info
//   - Audit trails
//   - Verification flows ("We sent a code to j***e@example.com")
package utils
