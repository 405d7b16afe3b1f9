// Package schema defines the persisted question item and the collection that
// holds them.
//
// # Storage Format
//
// The whole collection is serialized as a single JSON array under one store
// key, newest item first:
//
//	[
//	  {
//	    "id": "qi_1729261200123",
//	    "title": "Years of experience",
//	    "content": "5",
//	    "createdAt": "2024-10-18T14:20:00.123Z"
//	  }
//	]
//
// # Identity
//
// Item ids have the form qi_<unix millis>. The millisecond part is only
// monotonic-ish: IDGenerator bumps it past the last issued value and past
// any id already in the collection, so ids stay unique within a collection
// even when several items are created in the same millisecond.
//
// # Ordering
//
// Order is meaningful for display and for match tie-breaks. New items are
// inserted at the head; Collection.Prepend is the only way the repository
// adds items.
//
// Import/Export
//
// ReadJSONL and WriteJSONL move items in and out as one JSON object per line,
// which keeps exports diffable and lets a partially written file still
// import its valid prefix.
package schema
