// Package reveal drives a browser session against a live event page to find
// the player iframe URL.
//
// The protocol is a small state machine. After navigation the page is checked
// once for an iframe. Each configured click selector is then tried in order:
// if a matching element is visible it is clicked and the page is polled for an
// iframe until the poll timeout. The first iframe src found ends the attempt;
// running out of selectors ends it with ErrRevealTimeout.
//
// Sessions are scarce. A Revealer never holds more than the configured budget
// of sessions open, and callers that need listing order reserve slots with
// Acquire before starting work.
//
// The browser itself sits behind the Browser and Session interfaces. RodBrowser
// implements them with go-rod; tests use fakes. Sessions only navigate, look,
// and click. They never intercept traffic or alter request headers.
package reveal
