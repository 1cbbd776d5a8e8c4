package feed

import (
	"bytes"
	"mime"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Detector は設定されたソースURLがフィード本体かHTMLページかを判定し、
// HTMLページの場合はhead内のリンクからフィードURLを自動検出する。
type Detector struct{}

// NewDetector はDetectorの新しいインスタンスを生成する。
func NewDetector() *Detector {
	return &Detector{}
}

// feedContentTypes はフィードとして直接認識するContent-Type。
var feedContentTypes = []string{
	"application/rss+xml",
	"application/atom+xml",
}

// xmlContentTypes は汎用XMLのContent-Type（ボディ解析で判定する）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsDirectFeed はContent-Typeとボディから、レスポンスがRSS/Atomフィード
// そのものかどうかを判定する。
func (d *Detector) IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	for _, feedCT := range feedContentTypes {
		if mediaType == feedCT {
			return true
		}
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	// Content-Typeが不明な場合もボディ解析にフォールバックする
	if mediaType == "" || mediaType == "application/octet-stream" {
		isXML = true
	}

	if !isXML || len(body) == 0 {
		return false
	}

	return isFeedXML(body)
}

// isFeedXML はボディの先頭部分からRSS/Atomフィードかを判定する。
func isFeedXML(body []byte) bool {
	// 先頭4KBにXMLプロローグとルート要素が含まれる前提で検査する
	checkSize := 4096
	if len(body) < checkSize {
		checkSize = len(body)
	}
	prefix := strings.ToLower(string(body[:checkSize]))

	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return true
	}
	if strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom") {
		return true
	}
	return false
}

// DiscoverFeedURL はHTMLボディのheadタグからrel=alternateのフィードリンクを
// 検出し、最初に見つかったフィードURLを絶対URLで返す。
// 見つからない場合は空文字列を返す。
func (d *Detector) DiscoverFeedURL(htmlBody []byte, baseURL string) string {
	baseU, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	tokenizer := html.NewTokenizer(bytes.NewReader(htmlBody))
	inHead := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)

			if tagName == "head" {
				inHead = true
				continue
			}
			if tagName == "body" {
				return ""
			}
			if !inHead || tagName != "link" || !hasAttr {
				continue
			}

			var rel, linkType, href string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = string(val)
				}
				if !more {
					break
				}
			}

			if rel != "alternate" || href == "" {
				continue
			}
			if linkType != "application/rss+xml" && linkType != "application/atom+xml" {
				continue
			}

			ref, err := url.Parse(href)
			if err != nil {
				continue
			}
			return baseU.ResolveReference(ref).String()

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return ""
			}
		}
	}
}
