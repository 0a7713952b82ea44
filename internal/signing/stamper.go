package signing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

const (
	// MaxSignaturePayloadBytes bounds the encoded signature payload.
	MaxSignaturePayloadBytes = 1536 * 1024

	stampTargetWidthPts  = 170.0
	stampBottomMarginPts = 36
	stampSideInsetPts    = 44
)

// Stamper embeds a captured signature image onto the last page of an
// existing PDF. The two roles anchor to opposite bottom corners so the
// stamps never overlap; output is always a fresh byte slice.
type Stamper struct {
	conf *model.Configuration
}

func NewStamper() *Stamper {
	model.ConfigPath = "disable"
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Stamper{conf: conf}
}

// DecodeSignaturePayload accepts a base64 data URI (or bare base64) and
// returns the raw image bytes. The size bound applies to the encoded form.
func DecodeSignaturePayload(payload string) ([]byte, error) {
	if payload == "" {
		return nil, E(KindValidation, "signature image is required")
	}
	if len(payload) > MaxSignaturePayloadBytes {
		return nil, E(KindPayloadTooLarge, "signature image exceeds the allowed size")
	}
	encoded := payload
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, E(KindValidation, "malformed signature data uri")
		}
		encoded = payload[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, Wrap(KindValidation, "decoding signature image", err)
	}
	return raw, nil
}

// Stamp returns new PDF bytes with the signature image embedded on the
// last page of pdf. The image format is sniffed from the bytes, not the
// declared media type; only PNG and JPEG are accepted.
func (s *Stamper) Stamp(pdf []byte, img []byte, role SignerRole) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil || (format != "png" && format != "jpeg") {
		return nil, E(KindValidation, "signature image must be PNG or JPEG")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, E(KindValidation, "signature image has no pixels")
	}

	pageCount, err := s.PageCount(pdf)
	if err != nil {
		return nil, err
	}
	if pageCount < 1 {
		return nil, E(KindStorage, "report pdf has no pages")
	}

	// Scale to a ~170pt footprint, never above native size. 1px renders
	// as 1pt, so the factor comes straight from the pixel width.
	scale := stampTargetWidthPts / float64(cfg.Width)
	if scale > 1 {
		scale = 1
	}
	pos, inset := "bl", stampSideInsetPts
	if role == RoleProfessional {
		pos, inset = "br", -stampSideInsetPts
	}
	desc := fmt.Sprintf("pos:%s, off:%d %d, rot:0, scale:%.4f abs", pos, inset, stampBottomMarginPts, scale)

	wm, err := api.ImageWatermarkForReader(bytes.NewReader(img), desc, true, false, types.POINTS)
	if err != nil {
		return nil, Wrap(KindStorage, "building signature stamp", err)
	}

	var out bytes.Buffer
	lastPage := []string{strconv.Itoa(pageCount)}
	if err := api.AddWatermarks(bytes.NewReader(pdf), &out, lastPage, wm, s.conf); err != nil {
		return nil, Wrap(KindStorage, "stamping report pdf", err)
	}
	return out.Bytes(), nil
}

func (s *Stamper) PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), s.conf)
	if err != nil {
		return 0, Wrap(KindStorage, "reading report pdf", err)
	}
	return n, nil
}
