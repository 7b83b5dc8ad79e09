package page

// Locator is the single table of vendor-specific selectors and markers.
// Markup drift in the widget means editing this table, nothing else.
// Selector lists are ordered fallbacks: first match wins.
type Locator struct {
	Root         string   // widget root container
	MessageLists []string // message-list container candidates
	BotMessages  []string // bot message element candidates
	UserMessages []string // user message element candidates
	MessageText  string   // text element within a message
	Input        string   // chat input control
	SendButton   string   // send control
	ChatWindow   string   // overlay anchor within the root

	// Class-attribute substrings that identify a message's role.
	BotMarkers  []string
	UserMarkers []string

	// Vendor storage state cleared on block and on start-fresh.
	VendorMarkers []string // substring match over storage/cookie keys
	VendorKeys    []string // exact keys
}

// MessageSelectors returns the combined bot and user message selectors.
func (l Locator) MessageSelectors() []string {
	out := make([]string, 0, len(l.BotMessages)+len(l.UserMessages))
	out = append(out, l.BotMessages...)
	out = append(out, l.UserMessages...)
	return out
}

// DefaultLocator matches the embedded dealership chat widget this agent
// currently ships against.
func DefaultLocator() Locator {
	return Locator{
		Root: "#impel-chatbot",
		MessageLists: []string{
			"._messagesList_hamrg_14",
			`[class*="messagesList"]`,
			`[class*="messages_"]`,
			`[class*="chatMessages"]`,
		},
		BotMessages: []string{
			"._assistantMessageContainer_ricj1_1",
			`[class*="assistantMessage"]`,
			`[class*="botMessage"]`,
		},
		UserMessages: []string{
			"._userMessageContainer_1e59u_1",
			`[class*="userMessage"]`,
		},
		MessageText: "._messageText_frcys_28",
		Input:       "._inputText_ti1lk_18",
		SendButton:  "._sendButton_ti1lk_41",
		ChatWindow:  "._chatWindow_18och_19",

		BotMarkers:  []string{"assistantMessage", "botMessage"},
		UserMarkers: []string{"userMessage"},

		VendorMarkers: []string{"impel", "chat"},
		VendorKeys:    []string{"IC::SESSIONSTORE", "SP::SESSIONSTORE"},
	}
}
