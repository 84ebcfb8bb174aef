package repair

import (
	"bytes"
	"context"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/georgepadayatti/pdfseal/errs"
)

var disableConfigDir sync.Once

// Pdfcpu optimises the document with pdfcpu, writing a classic xref table
// and no object streams.
type Pdfcpu struct{}

// Name implements Repairer.
func (Pdfcpu) Name() string { return "pdfcpu" }

// Repair implements Repairer.
func (Pdfcpu) Repair(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	disableConfigDir.Do(func() { model.ConfigPath = "disable" })

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	var out bytes.Buffer
	if err := api.Optimize(bytes.NewReader(data), &out, conf); err != nil {
		return nil, errs.Wrap(errs.ErrUnparseablePDF, "repair.Pdfcpu", err)
	}
	return out.Bytes(), nil
}
