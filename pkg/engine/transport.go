package engine

import (
	"context"
	"io"

	"forge/pkg/smart"
)

// AdvertiseRefs writes the ref advertisement for a repository.
func (e *Engine) AdvertiseRefs(name string, w io.Writer) error {
	r, err := e.OpenRepository(name)
	if err != nil {
		return err
	}
	return smart.AdvertiseRefs(w, r)
}

// UploadPack serves one fetch against the named repository.
func (e *Engine) UploadPack(ctx context.Context, name string, in io.Reader, out io.Writer) error {
	r, err := e.OpenRepository(name)
	if err != nil {
		return err
	}
	return smart.UploadPack(ctx, r, in, out)
}

// ReceivePack serves one push against the named repository.
func (e *Engine) ReceivePack(ctx context.Context, name string, in io.Reader, out io.Writer) error {
	r, err := e.OpenRepository(name)
	if err != nil {
		return err
	}
	return smart.ReceivePack(ctx, r, in, out)
}
