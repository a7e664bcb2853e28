// Package qr locates and decodes the QR code in a donated image and derives
// its content fingerprint.
package qr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/dmitrijs2005/esimrouter/internal/imaging"
	"github.com/dmitrijs2005/esimrouter/internal/logging"
)

// Code is a decoded QR payload.
type Code struct {
	// Payload holds the raw decoded bytes; SHA is computed over these.
	Payload []byte
	Text    string
	SHA     string
}

// Fingerprint returns the hex SHA-256 of payload.
func Fingerprint(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// NewCode builds a Code from raw payload bytes.
func NewCode(payload []byte) Code {
	return Code{Payload: payload, Text: string(payload), SHA: Fingerprint(payload)}
}

// Decoder finds at most one QR code per image. It first decodes the
// grayscale image as is and, when nothing is found, retries once on its
// Otsu-binarized version.
type Decoder struct {
	log   logging.Logger
	hints map[gozxing.DecodeHintType]interface{}
}

func NewDecoder(log logging.Logger) *Decoder {
	return &Decoder{
		log: log,
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// DecodeBytes loads data and decodes it. Malformed input is logged and
// reported as not found.
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (Code, bool) {
	g, err := imaging.LoadGray(data)
	if err != nil {
		d.log.Warn(ctx, "qr: image not decodable", "error", err)
		return Code{}, false
	}
	return d.Decode(ctx, g)
}

// Decode looks for a QR code in g. When several are present only the first
// decoded one is returned.
func (d *Decoder) Decode(ctx context.Context, g *image.Gray) (Code, bool) {
	code, err := d.decodeImage(g)
	if err == nil {
		return code, true
	}
	d.log.Debug(ctx, "qr: direct pass found nothing, retrying binarized", "reason", err)

	code, err = d.decodeImage(imaging.BinarizeOtsu(g, 127))
	if err != nil {
		d.log.Debug(ctx, "qr: binarized pass found nothing", "reason", err)
		return Code{}, false
	}
	return code, true
}

func (d *Decoder) decodeImage(img image.Image) (code Code, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decoder panic: %v", r)
		}
	}()

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Code{}, err
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, d.hints)
	if err != nil {
		return Code{}, err
	}
	payload := payloadOf(res)
	return Code{Payload: payload, Text: res.GetText(), SHA: Fingerprint(payload)}, nil
}

// payloadOf prefers the raw byte segments over the decoded text so the
// fingerprint does not depend on character set handling. Segments are used
// only when they cover the whole text.
func payloadOf(res *gozxing.Result) []byte {
	text := res.GetText()
	segs, _ := res.GetResultMetadata()[gozxing.ResultMetadataType_BYTE_SEGMENTS].([][]byte)
	if len(segs) == 0 {
		return []byte(text)
	}
	var raw []byte
	for _, s := range segs {
		raw = append(raw, s...)
	}
	if len(raw) < len([]rune(text)) {
		return []byte(text)
	}
	return raw
}
