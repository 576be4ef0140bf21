// Package test holds black-box tests that run several engines against one
// shared store and one Redis, the way replicated invauthd processes do.
package test
