// Package rate provides Redis fixed-window counters used to throttle login and
// refresh attempts.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Key prefixes:
//   - rl:login:u: login per identifier
//   - rl:login:ip: login per client IP
//   - rl:refresh: refresh per client IP
//
// Counters are throttling only. Account lockout is a separate, durable state held by
// the user store.
package rate
