// Package term implements the logical clock that gates reclamation of retired
// cache structures.
//
// Every cache operation runs under a Guard. Acquiring a Guard stamps the
// operation with the current term and increments that term's outstanding
// counter; releasing it decrements the counter. Structural changes (table
// migration, cache close) retire a generation at the current term and then call
// Advance, so every Guard acquired afterwards carries a strictly newer term.
//
//	┌──────────┐  Acquire   ┌──────────────┐  Advance   ┌──────────────┐
//	│ op       │ ─────────► │ term N (n=2) │ ─────────► │ term N+1     │
//	└──────────┘            └──────────────┘            └──────────────┘
//	                          retired gens at N are freed once
//	                          CanReclaim(N) reports zero guards <= N
//
// Acquire never blocks: it is two atomic loads and one atomic add, retried
// only when it races with Advance. Each term owns its own padded counter so
// guards of neighbouring terms do not share cache lines.
package term
