package ir

// A BookIR is exclusively owned by the pipeline for the duration of a
// single conversion. Transforms receive exclusive access to it in
// sequence (see core/pipeline) and must not retain a reference after
// returning. Manifest items are owned by the Manifest; the Spine, Guide,
// and TOC hold ids or hrefs rather than direct references, so the
// resource graph is implicit and cannot form an ownership cycle.
//
// Lazy manifest items (ManifestData{Kind: DataLazy}) keep their bytes on
// disk; they are read on first access and never cached on the IR itself.
// The output phase is the only phase expected to read them, and it reads
// each one exactly once during serialization.
