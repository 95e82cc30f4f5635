package flow

// Quick-reply option labels. Inbound text matching one of these is always
// interpreted as the option, never as free text; the one exception is the
// free-text marker, which forces an explicit-entry prompt instead.
const (
	markerSendReference   = "参考写真を送る"
	markerFreeText        = "自由入力"
	markerKeepOriginal    = "そのまま"
	markerTryAgain        = "もう一度試す"
	markerChangeStyle     = "スタイルを変える"
	markerChangeColorOnly = "色だけ変える"
)

// greetings trigger a full state reset from any step.
var greetings = map[string]bool{
	"こんにちは":  true,
	"こんばんは":  true,
	"おはよう":   true,
	"はじめまして": true,
	"リセット":   true,
}

const (
	msgWelcome = "こんにちは！ヘアスタイルのシミュレーションができます。まずは正面から撮った自撮り写真を送ってください。"

	msgAskFace   = "自撮り写真を送ってください。正面から撮った明るい写真だときれいに仕上がります。"
	msgAskStyle  = "写真を受け取りました！なりたい髪型を選ぶか、入力してください。"
	msgAskStyle2 = "なりたい髪型を選ぶか、入力してください。"
	msgAskModel  = "参考にしたいヘアスタイルの写真を送ってください。"
	msgAskColor  = "髪色はどうしますか？"

	msgTypeStyle = "なりたい髪型を自由に入力してください。（例：ゆるふわパーマ）"
	msgTypeColor = "なりたい髪色を自由に入力してください。（例：ミルクティーベージュ）"

	msgGenerating = "画像を生成しています。少々お待ちください…"
	msgPleaseWait = "前の画像をまだ生成中です。できあがるまで少しお待ちください。"

	msgDone = "できあがりました！続けて試せます。"

	msgGenerationFailed = "ごめんなさい、画像の生成に失敗しました。髪型や色をもう一度送ると再挑戦できます。"
	msgPhotoReadFailed  = "写真をうまく読み込めませんでした。もう一度送ってください。"
)

var (
	styleLabels    = []string{"ボブ", "ショート", "ロング", "パーマ", markerSendReference, markerFreeText}
	colorLabels    = []string{"黒", "明るめブラウン", "アッシュ", markerKeepOriginal, markerFreeText}
	shortcutLabels = []string{markerTryAgain, markerChangeStyle, markerChangeColorOnly}
)
