// Package manager tracks workflow runs for the service layer.
//
// The manager submits runs asynchronously, keeps an in-memory registry of
// active and recently finished runs, supports status lookup, cancellation
// and live event subscriptions, and prunes finished runs after a retention
// window. Nothing is persisted across restarts.
package manager
