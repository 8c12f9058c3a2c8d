package model

// Button is one inline keyboard button: a label and the opaque callback
// token delivered back when the user presses it.
type Button struct {
	Label string
	Data  string
}

// Menu is a rendered reply: message text plus button rows. Transport layers
// turn it into whatever keyboard markup the messaging platform expects.
type Menu struct {
	Text    string
	Buttons [][]Button
}
