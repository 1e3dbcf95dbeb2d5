// Package rules owns rule definitions and their resolution.
//
// Ownership boundary:
// - native and derived rule shapes
//
// - modules (one rule object per symbol)
//
// - the ordered, hot-reloadable rule set and its memoized lookup cache
//
// A module is sealed once registered into a rule set. Changing a registered
// module means building a new one under the same name and registering it again,
// which the rule set treats as a reload.
package rules
