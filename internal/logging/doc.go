// Package logging provides structured logging helpers for autoreply.
//
// Recipient addresses are hashed before they are logged so log files can be
// correlated without exposing who was written to:
//
//	logger.Info("reply sent", logging.Recipient(addr), logging.ThreadID(tid))
//
// Tokens are never logged directly; use SanitizeToken.
package logging
