// Package models contains GORM persistence models for the billing core.
// Models are separate from domain entities: domain types carry no ORM
// tags, and each model converts to and from its entity with ToDomain and
// a ...FromDomain constructor.
//
// Partial unique indexes declared here back the single-active-contract
// and one-invoice-per-period rules. The SQL migrations under migrations/
// declare the same indexes for Postgres.
package models
