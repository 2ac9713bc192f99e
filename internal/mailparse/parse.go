// Package mailparse 将原始 MIME 邮件规范化为入站载荷。
//
// 边缘 Worker 大多数情况下投递预解析 JSON，raw 形式只在
// Worker 侧解析失败时作为兜底出现。
package mailparse

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/transform"

	"tempinbox/backend/internal/domain"
)

// Parse 解析原始邮件，提取文本、HTML、邮件头与附件。
func Parse(rawEmail []byte) (*domain.InboundEmail, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(rawEmail))
	if err != nil {
		return nil, fmt.Errorf("parse mail: %w", err)
	}

	parsed := &domain.InboundEmail{
		Subject:    decodeHeader(msg.Header.Get("Subject")),
		From:       msg.Header.Get("From"),
		To:         msg.Header.Get("To"),
		MessageID:  strings.Trim(msg.Header.Get("Message-ID"), "<>"),
		InReplyTo:  strings.Trim(msg.Header.Get("In-Reply-To"), "<>"),
		References: msg.Header.Get("References"),
	}

	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// 没有 Content-Type 或解析失败，按纯文本处理
		body, _ := io.ReadAll(msg.Body)
		parsed.TextBody = string(body)
		return parsed, nil
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		boundary := params["boundary"]
		if boundary == "" {
			return nil, fmt.Errorf("multipart message without boundary")
		}
		if err := parseMultipart(multipart.NewReader(msg.Body, boundary), parsed); err != nil {
			return nil, fmt.Errorf("parse multipart: %w", err)
		}
		return parsed, nil
	}

	body, err := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
	if err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if strings.HasPrefix(mediaType, "text/html") {
		parsed.HTMLBody = body
	} else {
		parsed.TextBody = body
	}
	return parsed, nil
}

// parseMultipart 递归解析多部分邮件。
func parseMultipart(mr *multipart.Reader, parsed *domain.InboundEmail) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			mediaType = "text/plain"
		}

		if disposition := part.Header.Get("Content-Disposition"); disposition != "" {
			dispType, dispParams, _ := mime.ParseMediaType(disposition)
			if dispType == "attachment" || dispType == "inline" {
				filename := dispParams["filename"]
				if filename == "" {
					filename = params["name"]
				}
				if filename == "" {
					filename = "unnamed"
				}
				filename = decodeHeader(filename)

				content, err := io.ReadAll(part)
				if err != nil {
					continue
				}
				if strings.EqualFold(part.Header.Get("Content-Transfer-Encoding"), "base64") {
					if decoded, err := base64.StdEncoding.DecodeString(string(content)); err == nil {
						content = decoded
					}
				}

				parsed.Attachments = append(parsed.Attachments, domain.InboundAttachment{
					Filename:    filename,
					ContentType: mediaType,
					Size:        int64(len(content)),
					Content:     content,
				})
				continue
			}
		}

		// 嵌套 multipart
		if strings.HasPrefix(mediaType, "multipart/") {
			if boundary := params["boundary"]; boundary != "" {
				if err := parseMultipart(multipart.NewReader(part, boundary), parsed); err != nil {
					return err
				}
			}
			continue
		}

		body, err := decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "text/html"):
			if parsed.HTMLBody == "" {
				parsed.HTMLBody = body
			}
		case strings.HasPrefix(mediaType, "text/plain"):
			if parsed.TextBody == "" {
				parsed.TextBody = body
			}
		}
	}
	return nil
}

// decodeBody 根据传输编码与字符集解码邮件体。
func decodeBody(reader io.Reader, transferEncoding, charset string) (string, error) {
	var decoded io.Reader = reader
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		decoded = base64.NewDecoder(base64.StdEncoding, reader)
	case "quoted-printable":
		decoded = quotedprintable.NewReader(reader)
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}

	charset = strings.ToLower(strings.TrimSpace(charset))
	if charset != "" && charset != "utf-8" && charset != "us-ascii" {
		if enc := charsetEncoding(charset); enc != nil {
			if converted, _, err := transform.Bytes(enc.NewDecoder(), body); err == nil {
				body = converted
			}
		}
	}
	return string(body), nil
}

// decodeHeader 解码 RFC 2047 编码的邮件头。
func decodeHeader(value string) string {
	dec := &mime.WordDecoder{
		CharsetReader: func(charset string, input io.Reader) (io.Reader, error) {
			if enc := charsetEncoding(strings.ToLower(charset)); enc != nil {
				return transform.NewReader(input, enc.NewDecoder()), nil
			}
			return input, nil
		},
	}
	decoded, err := dec.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}

// charsetEncoding 根据字符集名称返回编码器。
func charsetEncoding(charset string) encoding.Encoding {
	switch charset {
	case "gb2312", "gbk", "gb18030":
		return simplifiedchinese.GBK
	case "big5":
		return traditionalchinese.Big5
	case "iso-2022-jp", "shift_jis", "euc-jp":
		return japanese.ShiftJIS
	case "euc-kr", "ks_c_5601-1987":
		return korean.EUCKR
	default:
		return nil
	}
}
