// Package altpatch rewrites alternative instruction sequences in AArch64
// code images, gated on CPU capabilities.
//
// An image carries a default sequence at every patch site plus a
// replacement assembled at some other address, and a packed table
// describing the pairs. When the gating capability is present the
// replacement is copied over the default, and every PC-relative
// instruction that moved in the process is re-encoded so it still
// reaches the target it was assembled against. Undecidable references
// are fatal rather than guessed at.
//
// The image can be a plain file buffer, memory this process executes, or
// code loaded on the fly; the Flusher, Alias and StopMachine hooks in
// Config cover the differences.
//
// Limitations:
//   - AArch64 instructions only, though Codec admits other fixed-width
//     instruction sets
//   - a replacement must be exactly as long as the sequence it replaces
//   - patched sites stay patched, there is no undo
//   - patching live code leans on the caller to park every other core
package altpatch
