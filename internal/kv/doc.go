// Package kv provides the hierarchical key-value primitive lunadb persists to.
//
// Two layers:
//   - Backend: a flat, ordered byte store with prefix scans and atomic
//     batches. Implementations: LevelDB (file or in-memory), SQLite, Redis.
//   - Tree: hierarchical paths on top of a Backend. Objects are flattened
//     into one leaf per scalar/array so a sub-tree can be read, replaced or
//     removed with a single prefix scan.
//
// # Key Encoding
//
// A path is a list of segments. Each segment is escaped (0x00 -> 0x01 0x01,
// 0x01 -> 0x01 0x02) and terminated by 0x00, so the encoding of a path is a
// byte prefix of the encodings of all of its descendants and of nothing
// else. Segments may therefore contain dots and any other byte.
//
// # Change Hooks
//
// Tree.OnChange installs a hook that runs synchronously after every
// committed, non-empty write. Hooks run on the writer's goroutine over a
// snapshot of the installed set; a hook removed during a pass is skipped.
//
// Tree is not safe for concurrent writers. lunadb serialises all access
// through a single-writer loop.
package kv
