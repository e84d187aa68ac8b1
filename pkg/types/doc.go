// Package types defines the resource configuration model, the Store and
// Table interfaces, records and queries, and the standard errors shared by
// every pantry component.
//
// A Resource describes one entity: its table, its fields and how the admin
// UI, REST API and storefront may use it. Everything else in pantry is a
// mapping from Resources to SQL, routes and pages.
package types
