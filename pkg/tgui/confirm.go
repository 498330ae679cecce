package tgui

// Confirm builds a one-row yes/no keyboard.
func Confirm(yesText, yesData, noText, noData string) *Inline {
	return NewInline().Row(Btn(yesText, yesData), Btn(noText, noData))
}
