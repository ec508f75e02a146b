package generation

import (
	"fmt"
	"strings"

	"github.com/hirokts/enikki/pkg/domain"
)

const keywordSystem = "あなたは子どもの絵日記づくりを手伝うアシスタントです。会話から、その日の出来事を表すキーワードを抜き出します。"

func keywordPrompt(rec domain.ConversationRecord) string {
	return fmt.Sprintf(`次の会話（%s）から、絵日記の題材になるキーワードを重要な順に%d個抜き出してください。
出力は次の形式のJSONのみとします。説明やコードブロックは不要です。
{"keywords": ["キーワード1", "キーワード2", "キーワード3", "キーワード4"]}

会話:
%s`, rec.Date, domain.KeywordCount, rec.Script())
}

const diarySystem = "あなたは小学生になりきって絵日記の文章を書きます。"

func diaryPrompt(keywords []string, rec domain.ConversationRecord) string {
	return fmt.Sprintf(`次のキーワードと会話をもとに、子どもが書いた絵日記の文章を書いてください。

条件:
- 100〜150文字
- 一人称の子どもらしい口調で、必ず「%s」で書き始める
- 音・におい・手ざわりなど、五感の描写をちょうど1つ入れる
- 最後に、会話の内容から大人がくすっと笑えるひとことを添える
- 文章だけを出力し、タイトルや引用符は付けない

キーワード: %s

会話:
%s`, domain.DiaryOpener, strings.Join(keywords, "、"), rec.Script())
}

const qualitySystem = "あなたは子ども向け絵日記の編集者です。文章の品質を0から1の数値で採点します。"

func qualityPrompt(text string, keywords []string) string {
	return fmt.Sprintf(`次の絵日記の文章を採点してください。

観点:
- tone: 子どもらしい口調か
- emotion: 気持ちが伝わるか
- length: 100〜150文字に収まっているか
- naturalness: 文章として自然か

各観点を0〜1で評価し、総合点をscoreとして出力してください。
出力は次の形式のJSONのみとします。
{"score": 0.0, "tone": 0.0, "emotion": 0.0, "length": 0.0, "naturalness": 0.0, "comment": "短い講評"}

キーワード: %s
文章:
%s`, strings.Join(keywords, "、"), text)
}

const sceneSystem = "You turn children's picture-diary entries into concise illustration briefs."

func scenePrompt(text string, keywords []string) string {
	return fmt.Sprintf(`Read the following Japanese picture-diary entry and describe ONE scene to illustrate it.
Answer in English with JSON only, in this shape:
{"scene": "one or two sentences describing the scene", "elements": ["key visual element", "..."]}

Keywords: %s
Diary:
%s`, strings.Join(keywords, ", "), text)
}

const imageAspectRatio = "1:1"

func imagePrompt(scene Scene) string {
	var b strings.Builder
	b.WriteString("A warm, hand-drawn crayon illustration in the style of a child's picture diary. ")
	b.WriteString("Colorful, soft textures, gentle lighting. A single square 1:1 image with no text or letters. ")
	b.WriteString("Scene: ")
	b.WriteString(strings.TrimSpace(scene.Description))
	if len(scene.Elements) > 0 {
		b.WriteString(" Include: ")
		b.WriteString(strings.Join(scene.Elements, ", "))
		b.WriteString(".")
	}
	return b.String()
}
