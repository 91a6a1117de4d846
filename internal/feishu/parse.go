package feishu

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Content is the normalized form of a message's JSON content field.
// Text carries the flattened text for text/post messages; media
// messages carry the resource keys needed to fetch bytes later.
type Content struct {
	Text     string
	ImageKey string
	FileKey  string
	FileName string
	Duration int // audio length in ms
}

// ParseContent decodes the content JSON for the given message type.
func ParseContent(rawContent, messageType string) Content {
	if rawContent == "" {
		return Content{}
	}

	switch messageType {
	case "text":
		var textMsg struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(rawContent), &textMsg); err == nil {
			return Content{Text: textMsg.Text}
		}
		return Content{Text: rawContent}

	case "post":
		return Content{Text: parsePostContent(rawContent)}

	case "image":
		var imageMsg struct {
			ImageKey string `json:"image_key"`
		}
		if err := json.Unmarshal([]byte(rawContent), &imageMsg); err == nil {
			return Content{Text: "[image]", ImageKey: imageMsg.ImageKey}
		}
		return Content{Text: "[image]"}

	case "audio":
		var audioMsg struct {
			FileKey  string `json:"file_key"`
			Duration int    `json:"duration"`
		}
		if err := json.Unmarshal([]byte(rawContent), &audioMsg); err == nil {
			return Content{Text: "[audio]", FileKey: audioMsg.FileKey, Duration: audioMsg.Duration}
		}
		return Content{Text: "[audio]"}

	case "file":
		var fileMsg struct {
			FileKey  string `json:"file_key"`
			FileName string `json:"file_name"`
		}
		if err := json.Unmarshal([]byte(rawContent), &fileMsg); err == nil {
			return Content{
				Text:     fmt.Sprintf("[file: %s]", fileMsg.FileName),
				FileKey:  fileMsg.FileKey,
				FileName: fileMsg.FileName,
			}
		}
		return Content{Text: "[file]"}

	default:
		return Content{Text: fmt.Sprintf("[%s message]", messageType)}
	}
}

// parsePostContent flattens a rich-text post into plain text, one line
// per paragraph. Links become Markdown links, mentions become @name.
func parsePostContent(rawContent string) string {
	var post map[string]interface{}
	if err := json.Unmarshal([]byte(rawContent), &post); err != nil {
		return rawContent
	}

	var langContent interface{}
	for _, lang := range []string{"zh_cn", "en_us"} {
		if lc, ok := post[lang]; ok {
			langContent = lc
			break
		}
	}
	if langContent == nil {
		for _, v := range post {
			langContent = v
			break
		}
	}
	if langContent == nil {
		return rawContent
	}

	langMap, ok := langContent.(map[string]interface{})
	if !ok {
		return rawContent
	}

	contentArr, ok := langMap["content"].([]interface{})
	if !ok {
		return rawContent
	}

	var textParts []string
	for _, para := range contentArr {
		paraArr, ok := para.([]interface{})
		if !ok {
			continue
		}
		var lineParts []string
		for _, elem := range paraArr {
			elemMap, ok := elem.(map[string]interface{})
			if !ok {
				continue
			}
			tag, _ := elemMap["tag"].(string)
			switch tag {
			case "text", "md":
				if t, ok := elemMap["text"].(string); ok {
					lineParts = append(lineParts, t)
				}
			case "at":
				if name, ok := elemMap["user_name"].(string); ok {
					lineParts = append(lineParts, "@"+name)
				}
			case "a":
				if href, ok := elemMap["href"].(string); ok {
					text, _ := elemMap["text"].(string)
					if text != "" {
						lineParts = append(lineParts, fmt.Sprintf("[%s](%s)", text, href))
					} else {
						lineParts = append(lineParts, href)
					}
				}
			case "img":
				lineParts = append(lineParts, "[image]")
			}
		}
		if len(lineParts) > 0 {
			textParts = append(textParts, strings.Join(lineParts, ""))
		}
	}

	return strings.Join(textParts, "\n")
}
