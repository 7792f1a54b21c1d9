package models

// TemplatePage is one page of a stored multi-page template: an embed plus
// optional buttons (poll options, pager controls are added by the renderer).
type TemplatePage struct {
	Embed   Embed    `json:"embed"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Template is a stored multi-page embed/component definition, created by the
// dashboard and rendered by the send_template action.
type Template struct {
	ID    string         `json:"id"`
	BotID string         `json:"bot_id"`
	Name  string         `json:"name"`
	Pages []TemplatePage `json:"pages"`
}

// PageCount returns the number of pages of the template.
func (t *Template) PageCount() int { return len(t.Pages) }

// Page returns the page at idx, clamped into the valid range. Templates with
// no pages return an empty page.
func (t *Template) Page(idx int) TemplatePage {
	if len(t.Pages) == 0 {
		return TemplatePage{}
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(t.Pages) {
		idx = len(t.Pages) - 1
	}
	return t.Pages[idx]
}

// MessageLink records which template (and page) a published message renders,
// so a later interaction on that message can be correlated back.
type MessageLink struct {
	MessageID  string `json:"message_id"`
	TemplateID string `json:"template_id"`
	Page       int    `json:"page"`
}
