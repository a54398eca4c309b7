package marble

import "math/rand"

// BoardSize is the number of cells on the board. Three cells carry fixed
// labels; the other 25 are penalties drawn from the selected pool.
const BoardSize = 28

// Cell types.
const (
	CellStart       = "start"
	CellPenalty     = "penalty"
	CellUirijuFill  = "uirijuFill"
	CellUirijuDrink = "uirijuDrink"
)

// Fixed cell positions.
const (
	startIndex       = 0
	uirijuFillIndex  = 7
	uirijuDrinkIndex = 21
)

// Cell is one board position.
type Cell struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Text  string `json:"text"`
}

// selectedCount is how many penalties the voting close keeps. One more than
// the 25 penalty cells, so every board generation leaves one unused.
const selectedCount = 26

// defaultPenalties is the last-resort pool used when players and the
// catalog together provide fewer than 26 phrases.
var defaultPenalties = []string{
	"소주 한 잔 마시기",
	"옆 사람과 러브샷하기",
	"물 없이 과자 3개 먹기",
	"애교 3단 콤보 하기",
	"1분 동안 웃음 참기",
	"원하는 사람 지목해서 한 잔 주기",
	"다 같이 건배 제의하기",
	"전화번호부 10번째 사람에게 안부 문자 보내기",
	"좋아하는 이상형 말하기",
	"지금 기분을 삼행시로 짓기",
	"옆 사람 칭찬 3가지 하기",
	"테이블 한 바퀴 오리걸음으로 돌기",
	"셀카 찍어서 단체방에 올리기",
	"10초 동안 박수치며 웃기",
	"코끼리 코 5바퀴 돌고 제자리 서기",
	"양손으로 귀 잡고 반성의 포즈 10초",
	"옆 사람이 시키는 표정 따라하기",
	"가장 최근 찍힌 사진 보여주기",
	"노래 한 곡 허밍으로 맞히게 하기",
	"존경하는 사람에게 보내는 편지 한 줄 낭독하기",
	"내일 아침 기상 인증하기로 약속하기",
	"휴대폰 잠금 해제하고 1분 공개하기",
	"창문 밖을 보며 시 한 구절 읊기",
	"모두의 잔 채워주기",
	"벌칙 하나 더 뽑기",
	"한 게임 쉬면서 응원만 하기",
	"주량 공개하기",
	"지금까지 마신 잔 수 세어서 발표하기",
}

// generateBoard lays out a fresh 28-cell board. Penalty cells take a fresh
// shuffle of the selected pool, so two boards from one pool differ.
func generateBoard(selected []string) []Cell {
	pool := make([]string, len(selected))
	copy(pool, selected)
	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	board := make([]Cell, BoardSize)
	next := 0
	for i := 0; i < BoardSize; i++ {
		switch i {
		case startIndex:
			board[i] = Cell{Index: i, Type: CellStart, Text: "출발"}
		case uirijuFillIndex:
			board[i] = Cell{Index: i, Type: CellUirijuFill, Text: "의리주 제조"}
		case uirijuDrinkIndex:
			board[i] = Cell{Index: i, Type: CellUirijuDrink, Text: "의리주 원샷"}
		default:
			board[i] = Cell{Index: i, Type: CellPenalty, Text: pool[next%len(pool)]}
			next++
		}
	}
	return board
}
