package interservice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"regexp"
	"sort"
)

// EncodingEmbeddedBinary valor de HeaderPayloadEncoding para EmbeddedBinaryBody.
const EncodingEmbeddedBinary = "embedded-binary"

// ErrInvalidDataURI una imagen embebida no tiene la forma data:image/<subtype>;base64,<datos>.
var ErrInvalidDataURI = errors.New("interservice: data URI inválido")

// Body es la variante de payload de una petición saliente. El llamador elige la
// variante explícitamente; el cliente no inspecciona el contenido para adivinarla.
type Body interface {
	encode() (r io.Reader, contentType string, headers map[string]string, err error)
}

// JSONBody cuerpo application/json.
type JSONBody struct {
	Value interface{}
}

func (b JSONBody) encode() (io.Reader, string, map[string]string, error) {
	raw, err := json.Marshal(b.Value)
	if err != nil {
		return nil, "", nil, fmt.Errorf("serializar json: %w", err)
	}
	return bytes.NewReader(raw), "application/json", nil, nil
}

// FilePart archivo adjunto de un MultipartBody.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// MultipartBody cuerpo multipart/form-data. Los campos que no son escalares
// (mapas, slices, structs) se envían como su representación JSON.
type MultipartBody struct {
	Fields map[string]interface{}
	Files  []FilePart
}

func (b MultipartBody) encode() (io.Reader, string, map[string]string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, name := range sortedKeys(b.Fields) {
		val, err := formValue(b.Fields[name])
		if err != nil {
			return nil, "", nil, fmt.Errorf("campo %s: %w", name, err)
		}
		if err := w.WriteField(name, val); err != nil {
			return nil, "", nil, err
		}
	}
	for _, f := range b.Files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.Filename))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", nil, err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", nil, err
	}
	return &buf, w.FormDataContentType(), nil, nil
}

// formValue convierte un campo a su valor de formulario.
func formValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprint(t), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}

// EmbeddedBinaryBody campos más imágenes codificadas como data URI.
// Se envía como un sobre JSON y el receptor lo reconoce por HeaderPayloadEncoding.
type EmbeddedBinaryBody struct {
	Fields map[string]interface{}
	Images map[string]string // campo -> data:image/<subtype>;base64,<datos>
}

var dataURIRe = regexp.MustCompile(`^data:image/([a-zA-Z0-9.+-]+);base64,`)

// EmbeddedImage imagen decodificada del sobre.
type EmbeddedImage struct {
	ContentType string `json:"content_type"`
	Data        string `json:"data"` // base64 estándar
}

// EmbeddedEnvelope forma en el cable de EmbeddedBinaryBody.
type EmbeddedEnvelope struct {
	Fields map[string]interface{}   `json:"fields"`
	Images map[string]EmbeddedImage `json:"images"`
}

// ParseDataURI valida un data URI de imagen y devuelve el content type y los bytes.
func ParseDataURI(uri string) (string, []byte, error) {
	m := dataURIRe.FindStringSubmatch(uri)
	if m == nil {
		return "", nil, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(uri[len(m[0]):])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURI, err)
	}
	return "image/" + m[1], data, nil
}

func (b EmbeddedBinaryBody) encode() (io.Reader, string, map[string]string, error) {
	env := EmbeddedEnvelope{
		Fields: b.Fields,
		Images: make(map[string]EmbeddedImage, len(b.Images)),
	}
	if env.Fields == nil {
		env.Fields = map[string]interface{}{}
	}
	for field, uri := range b.Images {
		ct, data, err := ParseDataURI(uri)
		if err != nil {
			return nil, "", nil, fmt.Errorf("imagen %s: %w", field, err)
		}
		env.Images[field] = EmbeddedImage{ContentType: ct, Data: base64.StdEncoding.EncodeToString(data)}
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, "", nil, fmt.Errorf("serializar sobre: %w", err)
	}
	return bytes.NewReader(raw), "application/json", map[string]string{HeaderPayloadEncoding: EncodingEmbeddedBinary}, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
