// SPDX-License-Identifier: GPL-3.0-or-later

// Package pipeline provides composable primitives for the connect/observe/
// cancel steps the relay and chain builder need when dialing a downstream
// pluggable transport's local SOCKS endpoint.
//
// # Core Abstraction
//
// The package is built around a single interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic network operation with exactly one success
// mode and one failure mode. This design enables type-safe composition via
// [Compose2], [Compose3], etc., where the compiler verifies that outputs
// match inputs across pipeline stages.
//
// # Available Primitives
//
//   - [ConnectFunc]: dials TCP endpoints (the relay's outbound leg)
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes connection on context cancellation (so
//     process-wide shutdown closes in-flight dials and splices immediately)
//
// Composition utilities:
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewEndpointFunc]: convenience wrapper for ConstFunc with endpoints
//
// # Connection Lifecycle
//
// [ConnectFunc] creates a connection and transfers ownership to the next
// stage on success; on error it closes the connection. [ObserveConnFunc]
// and [CancelWatchFunc] wrap a connection without taking new ownership of
// the underlying file descriptor beyond delegating Close.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled. Set the Logger field to a
// custom [*slog.Logger] to enable logging. Error classification is
// configurable via [ErrClassifier]; by default, [DefaultErrClassifier]
// labels errors using the errclass package.
//
// Primitives emit *Start/*Done event pairs recording operation lifecycle,
// timing, and success/failure. All events carry remoteAddr, protocol, and
// t (timestamp), and all but connectStart carry localAddr; *Done events
// additionally carry t0, err, and errClass. I/O-level events are emitted at [slog.LevelDebug]; lifecycle
// events at [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for
// each relay connection, then attach it to the logger with
// [*slog.Logger.With] so every log line for that connection can be
// correlated.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the context
// they receive. The caller controls timeouts externally via
// [context.WithTimeout] or [context.WithDeadline]. [CancelWatchFunc] must be
// present in any pipeline whose connection should die when the context is
// cancelled — without it, I/O may block past context cancellation.
//
// # Design Boundaries
//
// This package intentionally provides only primitives; fan-out, retry, and
// multi-step orchestration belong to the calling package ([internal/relay],
// [internal/chain]).
package pipeline
