package bot

// State is a conversation state. One state machine instance exists per user;
// the inbound event handler is picked by the session's current state.
type State int

const (
	// StateTypingSongName waits for a song name to search. Initial state
	// and the state every reset returns to.
	StateTypingSongName State = iota
	// StateSelectingSong waits for the user to press one of the candidate
	// buttons produced by a search.
	StateSelectingSong
	// StateChoosingOptions shows the main menu: edit window, create video,
	// new search.
	StateChoosingOptions
	// StateSelectingAction shows the time sub-menu: from start, custom, back.
	StateSelectingAction
	// StateInputTimeCode waits for a free-text time window.
	StateInputTimeCode
)

func (s State) String() string {
	switch s {
	case StateTypingSongName:
		return "typing_song_name"
	case StateSelectingSong:
		return "selecting_song"
	case StateChoosingOptions:
		return "choosing_options"
	case StateSelectingAction:
		return "selecting_action"
	case StateInputTimeCode:
		return "input_time_code"
	default:
		return "unknown"
	}
}

// Callback tokens carried in menu buttons.
const (
	CallbackSetTimeCode   = "set_time_code"
	CallbackCreateVideo   = "create_video"
	CallbackRestartSearch = "restart_search"
	CallbackFromStart     = "duration_start"
	CallbackCustomTime    = "duration_custom"
	CallbackBackToMenu    = "back_to_menu"
)
