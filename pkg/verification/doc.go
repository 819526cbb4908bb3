// Package verification implements the email/code onboarding gate for a
// chat community: new members prove membership in an organization by
// verifying an institutional email address through a one-time 6-digit
// code, after which the platform adapter grants them a verified role.
//
// # Overview
//
// The package provides:
//   - The verification engine (Service): a per-user state machine
//     waiting_email -> waiting_code -> verified, with failed as the
//     exhausted-budget state
//   - Institutional email validation against a configured domain set
//   - Uniform 6-digit code generation with string-equality checking
//   - Attempt limits backed by the store and an advisory cooldown tracker
//   - An append-only security log written on every transition attempt
//   - Repository implementations for PostgreSQL, JSON files, BoltDB and
//     memory
//
// # Basic Usage
//
//	repo := verification.NewInMemRepository()
//	cooldowns := ratelimit.NewCooldownTracker(time.Hour)
//	engine := verification.NewService(repo, codeSender, cooldowns, verification.Config{
//		MaxAttempts:         3,
//		Cooldown:            time.Hour,
//		CodeTTL:             10 * time.Minute,
//		AllowedEmailDomains: []string{"ynov.com"},
//	})
//
//	// Member joins the community
//	err := engine.OnMemberJoined(ctx, userID, displayName, groupID)
//
//	// Every direct message goes through the engine
//	result, err := engine.OnUserMessage(ctx, userID, displayName, text)
//	switch result.ReplyKind {
//	case verification.ReplyCodeSent:
//		// tell the user to check their inbox
//	case verification.ReplyVerified:
//		// congratulate; role grant already ran via WithOnVerified
//	}
//
// The engine produces structured Results only; rendering them into
// platform messages is the ingress adapter's job (pkg/ingress).
//
// # Concurrency
//
// Operations for one user are serialized on an internal keyed mutex so two
// concurrent messages cannot race on the same pending record. Different
// users proceed in parallel. The store is the single source of truth;
// the cooldown tracker is in-process advisory state and does not
// survive a restart.
package verification
