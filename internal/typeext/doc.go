// Package typeext is a registry of extensions attached to remote types.
//
// An extension is registered against a module and either an exact type name
// or a predicate over type names, under an extension name. Resolution walks
// a candidate's type and then its base types, so an extension registered on
// a base class applies to every derived class unless a more derived
// registration with the same name shadows it.
//
// Tables are copy-on-write: mutations build a new table and publish it
// atomically, so readers never block and never see a half-applied change.
package typeext
