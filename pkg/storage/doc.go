// Package storage is the on-disk blob store for retained images.
//
// Images go to image_<fingerprint>.jpg in the image directory and captions to
// title_<fingerprint>.txt in the caption directory, one line with a fixed
// label. Optional JSON sidecars go to meta_<fingerprint>.json. Every write
// goes through a temporary file and a rename, so a crash never leaves a
// half-written image that the next run would try to seed from.
//
// Usage:
//
//	m := storage.NewManager(cfg.Output)
//	if err := m.EnsureLayout(); err != nil {
//	    return err
//	}
//	if err := m.SaveImage(fp, data); err != nil {
//	    log.WithError(err).Warn("store failed")
//	}
package storage
