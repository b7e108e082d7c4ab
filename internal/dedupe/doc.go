// Package dedupe suppresses repeated channel frames that arrive within a short window.
package dedupe
