// Package session houses concrete implementations of the core.SessionStore.
// The interface itself (and the Session struct) live in the core package to
// centralize domain contracts. Keeping only implementations here prevents
// higher level packages (router, engine) from depending on concrete storage.
//
// Session state is deliberately ephemeral: the store is memory-resident and
// sessions expire after an idle timeout. Durable backends would be added in
// sub-packages without changing any calling code.
package session
