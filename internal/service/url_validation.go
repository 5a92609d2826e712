package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/noah-isme/llmcompare/internal/dto"
)

// MaxURLs is the number of context URLs a submission may carry.
const MaxURLs = 3

var (
	urlTokenPattern   = regexp.MustCompile(`https?://[^\s]+`)
	urlSyntaxPattern  = regexp.MustCompile(`^(https?://)?([\da-z.-]+)\.([a-z.]{2,6})([/\w .-]*)*/?$`)
	blockedExtPattern = regexp.MustCompile(`(?i)\.(jpeg|jpg|gif|png|bmp|svg|webp|pdf|doc|docx|xls|xlsx|ppt|pptx|txt)$`)
)

// URLValidation is the outcome of checking the additional-info field.
type URLValidation struct {
	Value   string
	Valid   []string
	Invalid []string
	Dropped []string
	Alerts  []string
}

// Changed reports whether the field value had to be rewritten.
func (v URLValidation) Changed() bool {
	return len(v.Invalid) > 0 || len(v.Dropped) > 0
}

// Response converts the validation into its wire form.
func (v URLValidation) Response() dto.URLValidationResponse {
	return dto.URLValidationResponse{
		Value:   v.Value,
		Valid:   nonNil(v.Valid),
		Invalid: nonNil(v.Invalid),
		Dropped: nonNil(v.Dropped),
		Alerts:  nonNil(v.Alerts),
		Changed: v.Changed(),
	}
}

// IsAcceptedURL reports whether a single URL passes the syntax check and is not an
// image or document link.
func IsAcceptedURL(url string) bool {
	return urlSyntaxPattern.MatchString(url) && !blockedExtPattern.MatchString(url)
}

// ValidateURLs extracts http(s) URLs from free text and keeps at most MaxURLs accepted
// ones. Text without a scheme is never extracted. When nothing had to be removed the
// input is returned unchanged; otherwise the value becomes the surviving URLs, one per line.
func ValidateURLs(input string) URLValidation {
	result := URLValidation{Value: input}

	for _, url := range urlTokenPattern.FindAllString(input, -1) {
		if IsAcceptedURL(url) {
			result.Valid = append(result.Valid, url)
		} else {
			result.Invalid = append(result.Invalid, url)
		}
	}

	if len(result.Invalid) > 0 {
		result.Alerts = append(result.Alerts,
			"以下 URL 格式不支援或為圖片/文檔：\n"+strings.Join(result.Invalid, "\n")+"\n請修正或刪除這些 URL。")
	}

	if len(result.Valid) > MaxURLs {
		result.Dropped = append(result.Dropped, result.Valid[MaxURLs:]...)
		result.Valid = result.Valid[:MaxURLs]
		result.Alerts = append(result.Alerts, fmt.Sprintf("最多只能輸入 %d 個 URL。超出的部分將被刪除。", MaxURLs))
	}

	if result.Changed() {
		result.Value = strings.Join(result.Valid, "\n")
	}

	return result
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
