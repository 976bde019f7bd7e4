package pipeline

import (
	"bytes"
	"strings"

	"github.com/jhillyerd/enmime"
)

type WorkbookAttachment struct {
	FileName string
	Content  []byte
}

// ExtractWorkbookAttachments pulls the spreadsheet attachments out of a raw
// RFC 5322 message. Anything that is not an Excel workbook is ignored.
func ExtractWorkbookAttachments(raw []byte) ([]WorkbookAttachment, string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, "", err
	}

	out := make([]WorkbookAttachment, 0, len(env.Attachments))
	for _, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		lower := strings.ToLower(filename)
		if !strings.HasSuffix(lower, ".xlsx") && !strings.HasSuffix(lower, ".xls") {
			continue
		}
		out = append(out, WorkbookAttachment{FileName: filename, Content: att.Content})
	}

	return out, env.GetHeader("Subject"), nil
}
