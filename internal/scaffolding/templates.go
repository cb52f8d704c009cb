package scaffolding

// FileTemplate is one file of a new project.
type FileTemplate struct {
	// Path is slash-separated and relative to the project directory.
	Path    string
	Content string
	// Literal files are written as-is instead of executed as templates.
	Literal bool
}

// ProjectData is the data file templates are executed with.
type ProjectData struct {
	Name        string
	Title       string
	Main        string
	Stylesheets string
	AssetTag    string
}

// GetBuiltinTemplates returns the files of a new project. The HTML shell
// and configuration are written separately.
func GetBuiltinTemplates() []FileTemplate {
	return []FileTemplate{
		{Path: "elm.json", Content: elmJSONTemplate},
		{Path: "src/Main.elm", Content: mainTemplate},
		{Path: "src/Assets.elm", Content: assetsTemplate},
		{Path: "src/Stylesheets.elm", Content: stylesheetsTemplate},
		{Path: "assets/logo.svg", Content: logoSVG, Literal: true},
		{Path: ".gitignore", Content: gitignoreTemplate, Literal: true},
	}
}

const elmJSONTemplate = `{
    "type": "application",
    "source-directories": [
        "src"
    ],
    "elm-version": "0.19.1",
    "dependencies": {
        "direct": {
            "elm/browser": "1.0.2",
            "elm/core": "1.0.5",
            "elm/html": "1.0.0",
            "rtfeldman/elm-css": "18.0.0"
        },
        "indirect": {
            "elm/json": "1.1.3",
            "elm/time": "1.0.0",
            "elm/url": "1.0.0",
            "elm/virtual-dom": "1.0.3",
            "robinheghan/murmur3": "1.0.0",
            "rtfeldman/elm-hex": "1.0.0"
        }
    },
    "test-dependencies": {
        "direct": {},
        "indirect": {}
    }
}
`

const mainTemplate = `module Main exposing (main)

import Assets
import Browser
import Html exposing (Html, button, div, h1, img, text)
import Html.Attributes exposing (alt, class, src)
import Html.Events exposing (onClick)


type alias Model =
    Int


type Msg
    = Increment
    | Decrement


main : Program () Model Msg
main =
    Browser.sandbox { init = 0, update = update, view = view }


update : Msg -> Model -> Model
update msg model =
    case msg of
        Increment ->
            model + 1

        Decrement ->
            model - 1


view : Model -> Html Msg
view model =
    div [ class "app" ]
        [ img [ src (Assets.path Assets.logo), alt "logo" ] []
        , h1 [] [ text "{{.Title}}" ]
        , button [ onClick Decrement ] [ text "-" ]
        , div [ class "count" ] [ text (String.fromInt model) ]
        , button [ onClick Increment ] [ text "+" ]
        ]
`

const assetsTemplate = `module Assets exposing ({{.AssetTag}}, logo, path)

{-| Files referenced through {{.AssetTag}} are copied to the build output
under content-hashed names and the reference is replaced by their URL.
-}


type {{.AssetTag}}
    = {{.AssetTag}} String


path : {{.AssetTag}} -> String
path ({{.AssetTag}} p) =
    p


logo : {{.AssetTag}}
logo =
    {{.AssetTag}} "assets/logo.svg"
`

const stylesheetsTemplate = `port module Stylesheets exposing (main)

import Css exposing (..)
import Css.File exposing (CssCompilerProgram, CssFileStructure)
import Css.Global exposing (body, class)


port files : CssFileStructure -> Cmd msg


fileStructure : CssFileStructure
fileStructure =
    Css.File.toFileStructure
        [ ( "main.css", Css.File.compile [ app ] ) ]


app : Css.Stylesheet
app =
    Css.stylesheet
        [ body
            [ margin zero
            , fontFamily sansSerif
            ]
        , class "app"
            [ textAlign center
            , padding (px 32)
            ]
        , class "count"
            [ fontSize (px 48)
            ]
        ]


main : CssCompilerProgram
main =
    Css.File.compiler files fileStructure
`

const logoSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64" viewBox="0 0 64 64">
  <polygon points="32,4 60,32 32,60 4,32" fill="#60b5cc"/>
</svg>
`

const gitignoreTemplate = `elm-stuff/
dist/
`
