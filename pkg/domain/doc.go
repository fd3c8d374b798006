// Package domain defines the values, commands and events that flow through
// the commands and events logs.
//
// Command and Event are closed sum types: the set of variants is fixed by an
// unexported marker method, and consumers dispatch on them with type switches.
//
// Wire format: UTF-8 JSON, internally tagged by an "action" field.
//
//	{"action":"CreateValue","id":"…","data":{"value_id":"…","value":2}}
//	{"action":"UpdateValue","id":"…","data":{"value_id":"…","operation":"ADD","value":2}}
//	{"action":"ValueCreated","id":"…","parent":"…","data":{"value_id":"…","value":2}}
//	{"action":"ValueUpdated","id":"…","parent":"…","data":{"value_id":"…","operation":"MULTIPLY","value":2.5}}
package domain
