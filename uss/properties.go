package uss

type propertyDef struct {
	kind     Kind
	keywords []string
}

var (
	vocabAuto      = []string{"auto", "initial"}
	vocabNone      = []string{"none", "initial"}
	vocabTextAlign = []string{
		"upper-left", "upper-center", "upper-right",
		"middle-left", "middle-center", "middle-right",
		"lower-left", "lower-center", "lower-right",
	}
	vocabAlign = []string{"auto", "flex-start", "flex-end", "center", "stretch"}
)

// properties is the single source of truth for property value kinds.
var properties = map[string]propertyDef{
	// font and text
	"font-size":                     {kind: KindScalar},
	"-unity-font":                   {kind: KindResource},
	"-unity-font-definition":        {kind: KindResource},
	"-unity-font-style":             {kind: KindKeyword, keywords: []string{"normal", "italic", "bold", "bold-and-italic"}},
	"-unity-text-align":             {kind: KindKeyword, keywords: vocabTextAlign},
	"-unity-text-outline-width":     {kind: KindScalar},
	"-unity-paragraph-spacing":      {kind: KindScalar},
	"-unity-text-overflow-position": {kind: KindKeyword, keywords: []string{"start", "middle", "end"}},
	"letter-spacing":                {kind: KindScalar},
	"word-spacing":                  {kind: KindScalar},
	"white-space":                   {kind: KindKeyword, keywords: []string{"normal", "nowrap", "pre", "pre-wrap"}},
	"text-overflow":                 {kind: KindKeyword, keywords: []string{"clip", "ellipsis"}},

	// dimensions
	"width":      {kind: KindScalar, keywords: vocabAuto},
	"height":     {kind: KindScalar, keywords: vocabAuto},
	"min-width":  {kind: KindScalar, keywords: vocabAuto},
	"min-height": {kind: KindScalar, keywords: vocabAuto},
	"max-width":  {kind: KindScalar, keywords: vocabNone},
	"max-height": {kind: KindScalar, keywords: vocabNone},

	// box model
	"padding":        {kind: KindScalar},
	"padding-top":    {kind: KindScalar},
	"padding-right":  {kind: KindScalar},
	"padding-bottom": {kind: KindScalar},
	"padding-left":   {kind: KindScalar},
	"margin":         {kind: KindScalar, keywords: vocabAuto},
	"margin-top":     {kind: KindScalar, keywords: vocabAuto},
	"margin-right":   {kind: KindScalar, keywords: vocabAuto},
	"margin-bottom":  {kind: KindScalar, keywords: vocabAuto},
	"margin-left":    {kind: KindScalar, keywords: vocabAuto},

	// borders
	"border-width":               {kind: KindScalar},
	"border-top-width":           {kind: KindScalar},
	"border-right-width":         {kind: KindScalar},
	"border-bottom-width":        {kind: KindScalar},
	"border-left-width":          {kind: KindScalar},
	"border-radius":              {kind: KindScalar},
	"border-top-left-radius":     {kind: KindScalar},
	"border-top-right-radius":    {kind: KindScalar},
	"border-bottom-left-radius":  {kind: KindScalar},
	"border-bottom-right-radius": {kind: KindScalar},
	"border-color":               {kind: KindColor},
	"border-top-color":           {kind: KindColor},
	"border-right-color":         {kind: KindColor},
	"border-bottom-color":        {kind: KindColor},
	"border-left-color":          {kind: KindColor},

	// colors and backgrounds
	"color":                              {kind: KindColor},
	"background-color":                   {kind: KindColor},
	"background-image":                   {kind: KindResource},
	"-unity-background-image-tint-color": {kind: KindColor},
	"-unity-background-scale-mode":       {kind: KindKeyword, keywords: []string{"stretch-to-fill", "scale-and-crop", "scale-to-fit"}},
	"-unity-text-outline-color":          {kind: KindColor},

	// visual effects
	"opacity":                  {kind: KindScalar},
	"visibility":               {kind: KindKeyword, keywords: []string{"visible", "hidden"}},
	"display":                  {kind: KindKeyword, keywords: []string{"flex", "none"}},
	"overflow":                 {kind: KindKeyword, keywords: []string{"visible", "hidden", "scroll"}},
	"-unity-overflow-clip-box": {kind: KindKeyword, keywords: []string{"padding-box", "content-box"}},
	"cursor":                   {kind: KindResource},
	"rotate":                   {kind: KindScalar, keywords: vocabNone},

	// position and flex
	"position":        {kind: KindKeyword, keywords: []string{"relative", "absolute"}},
	"left":            {kind: KindScalar, keywords: vocabAuto},
	"top":             {kind: KindScalar, keywords: vocabAuto},
	"right":           {kind: KindScalar, keywords: vocabAuto},
	"bottom":          {kind: KindScalar, keywords: vocabAuto},
	"flex-direction":  {kind: KindKeyword, keywords: []string{"row", "row-reverse", "column", "column-reverse"}},
	"flex-wrap":       {kind: KindKeyword, keywords: []string{"nowrap", "wrap", "wrap-reverse"}},
	"flex-grow":       {kind: KindScalar},
	"flex-shrink":     {kind: KindScalar},
	"flex-basis":      {kind: KindScalar, keywords: vocabAuto},
	"align-items":     {kind: KindKeyword, keywords: vocabAlign},
	"align-self":      {kind: KindKeyword, keywords: vocabAlign},
	"align-content":   {kind: KindKeyword, keywords: vocabAlign},
	"justify-content": {kind: KindKeyword, keywords: []string{"flex-start", "flex-end", "center", "space-between", "space-around", "space-evenly"}},

	// transitions
	"transition-duration":        {kind: KindScalar},
	"transition-delay":           {kind: KindScalar},
	"transition-timing-function": {kind: KindKeyword, keywords: []string{"ease", "ease-in", "ease-out", "ease-in-out", "linear"}},

	// 9-slice
	"-unity-slice-left":   {kind: KindScalar},
	"-unity-slice-top":    {kind: KindScalar},
	"-unity-slice-right":  {kind: KindScalar},
	"-unity-slice-bottom": {kind: KindScalar},
	"-unity-slice-scale":  {kind: KindScalar},
}

// KindFor returns the kind of value property expects, KindUnknown for
// properties we do not know how to encode.
func KindFor(property string) Kind {
	if def, ok := properties[property]; ok {
		return def.kind
	}
	return KindUnknown
}

// Keywords returns keyword vocabulary accepted by property.
func Keywords(property string) []string {
	return properties[property].keywords
}
