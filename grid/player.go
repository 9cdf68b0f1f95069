package grid

// Player is one participant in a room. Index is the player's stable slot in
// join order and the value written into cell ownership markers.
type Player struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Index        int    `json:"index"`
	Color        string `json:"color"`
	Controls     string `json:"controls"`
	Position     int    `json:"position"`
	Score        int    `json:"score"`
	PowerCounter int    `json:"powerCounter"`
	StolenCount  int    `json:"stolenCount"`
	SavedCount   int    `json:"savedCount"`
	IsReady      bool   `json:"isReady"`
	IsHost       bool   `json:"isHost"`
}
