// Package extension loads native rule providers built as Go plugins.
//
// A provider is a package main built with -buildmode=plugin that exports:
//
//	var MantraABIVersion = extension.ABIVersion
//	func Extend(host extension.Host, hotReload bool) error
//
// Extend registers its own modules through host.Rules().
package extension
