// Package async holds the concurrency primitives used to compose remote
// requests.
//
// A Future memoizes one computation so that every caller shares a single
// in-flight result. All issues independent work concurrently and returns
// results in issue order; Settle does the same but isolates failures.
//
// Dependent work is expressed as plain sequential code in the calling
// goroutine. Nothing in this package cancels work that was already issued
// beyond what the caller's context does.
package async
