// Package audit relays security events to sinks without blocking the operation
// that produced them.
//
// # Components
//
//   - [Sink]: event consumer (channel, JSON lines, logrus, AMQP, fan-out).
//   - [Dispatcher]: buffered async relay. A full buffer drops the event and counts it.
//   - [Event]: structured record with timestamp, type, user, organization, session, IP.
//
// # What this package must NOT do
//
//   - Decide which events to emit.
//   - Surface sink failures to the caller of Emit.
//   - Import orgauth or any sibling internal package.
package audit
