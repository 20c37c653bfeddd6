package normalizer

import (
	"encoding/json"
	"testing"
	"time"

	"character-sync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

var defaultAbilities = models.Abilities{
	Strength:     10,
	Dexterity:    10,
	Constitution: 10,
	Intelligence: 10,
	Wisdom:       10,
	Charisma:     10,
}

func TestModifier(t *testing.T) {
	tests := map[int]int{
		1:  -5,
		7:  -2,
		8:  -1,
		9:  -1,
		10: 0,
		11: 0,
		12: 1,
		18: 4,
		19: 4,
		30: 10,
	}
	for score, want := range tests {
		assert.Equal(t, want, Modifier(score), "score %d", score)
	}
}

func TestNormalize_EmptyObjectDefaults(t *testing.T) {
	got := Normalize(json.RawMessage(`{}`))

	assert.Equal(t, 1, got.Level)
	assert.Equal(t, defaultAbilities, got.Abilities)
	assert.Equal(t, models.Saves{}, got.Saves)
	assert.Equal(t, 10, got.Combat.ArmorClass)
	assert.Equal(t, 10, got.Combat.TouchAC)
	assert.Equal(t, 10, got.Combat.FlatFootedAC)
	assert.Equal(t, 30, got.Combat.Speed)
	assert.Equal(t, 10, got.Combat.CombatManeuverDef)
	assert.Equal(t, 0, got.Combat.MaxHP)
	assert.NotNil(t, got.Skills)
	assert.Empty(t, got.Skills)
	assert.Equal(t, []string{}, got.Feats)
	assert.Equal(t, []string{}, got.SpecialAbilities)
	assert.Equal(t, []models.Weapon{}, got.Weapons)
	assert.Nil(t, got.Armor)
	assert.Empty(t, got.Spells)
	assert.Equal(t, models.BasicInfo{}, got.Info)
}

func TestNormalize_NeverPanicsOnOddInput(t *testing.T) {
	for _, doc := range []string{
		``, `null`, `[]`, `"text"`, `42`, `{"level":"high"}`,
		`{"abilityScores":[1,2,3]}`, `{"skills":"none"}`, `{"feats":{"a":null}}`,
		`{"weapons":[null, 5, {"damage":"1d6"}]}`, `{"armor":[]}`, `{"spells":{"x":1}}`,
	} {
		assert.NotPanics(t, func() { Normalize(json.RawMessage(doc)) }, doc)
	}
}

func TestNormalize_OgunScenario(t *testing.T) {
	got := Normalize(json.RawMessage(`{"name":"Ogun","level":5}`))
	assert.Equal(t, 5, got.Level)
	assert.Equal(t, defaultAbilities, got.Abilities)
}

func TestNormalize_AbilityShapes(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"score object total", `{"abilityScores":{"strength":{"total":18,"base":16}}}`, 18},
		{"score object value", `{"abilityScores":{"strength":{"value":14}}}`, 14},
		{"score object permanentTotal", `{"abilityScores":{"strength":{"permanentTotal":12}}}`, 12},
		{"abbreviated", `{"abilities":{"str":15}}`, 15},
		{"uppercase abbreviated", `{"abilities":{"STR":13}}`, 13},
		{"numeric string", `{"abilities":{"strength":"17"}}`, 17},
		{"top level", `{"strength":11}`, 11},
		{"list shape", `{"abilities":[{"name":"Dexterity","total":9},{"name":"Strength","total":16}]}`, 16},
		{"wrong type falls through", `{"abilityScores":{"strength":true},"str":8}`, 8},
		{"first present wins", `{"abilityScores":{"strength":20},"strength":3}`, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(json.RawMessage(tt.doc))
			assert.Equal(t, tt.want, got.Abilities.Strength)
			assert.Equal(t, 10, got.Abilities.Charisma)
		})
	}
}

func TestNormalize_Level(t *testing.T) {
	assert.Equal(t, 7, Normalize(json.RawMessage(`{"characterInfo":{"level":7},"level":2}`)).Level)
	assert.Equal(t, 6, Normalize(json.RawMessage(`{"classes":[{"name":"Fighter","level":4},{"name":"Rogue","level":2}]}`)).Level)
	assert.Equal(t, 1, Normalize(json.RawMessage(`{"level":0}`)).Level)
	assert.Equal(t, 1, Normalize(json.RawMessage(`{"level":-3}`)).Level)
}

func TestNormalize_CombatAndSaves(t *testing.T) {
	doc := `{
		"combat": {
			"hp": {"current": 31, "max": 45, "temp": 5},
			"ac": {"total": 21, "touch": 12, "flatFooted": 19},
			"initiative": "+6",
			"bab": 7,
			"cmb": 10,
			"cmd": 23
		},
		"speed": {"base": "20 ft."},
		"savingThrows": {"fort": {"total": 8}, "ref": 4},
		"saves": {"will": 3}
	}`
	got := Normalize(json.RawMessage(doc))

	assert.Equal(t, models.Combat{
		CurrentHP:           31,
		MaxHP:               45,
		TempHP:              5,
		ArmorClass:          21,
		TouchAC:             12,
		FlatFootedAC:        19,
		Initiative:          6,
		Speed:               20,
		BaseAttackBonus:     7,
		CombatManeuverBonus: 10,
		CombatManeuverDef:   23,
	}, got.Combat)
	assert.Equal(t, models.Saves{Fortitude: 8, Reflex: 4, Will: 3}, got.Saves)
}

func TestNormalize_CurrentHPDefaultsToMax(t *testing.T) {
	got := Normalize(json.RawMessage(`{"hitPoints":{"max":12}}`))
	assert.Equal(t, 12, got.Combat.MaxHP)
	assert.Equal(t, 12, got.Combat.CurrentHP)
}

func TestNormalize_Skills(t *testing.T) {
	keyed := Normalize(json.RawMessage(`{"skills":{
		"Perception": {"ranks": 5, "total": 11, "misc": 2, "classSkill": true},
		"Stealth": 7,
		"Knowledge (arcana)": {"ranks": 1, "total": 4, "isClassSkill": "yes"}
	}}`))
	assert.Equal(t, map[string]models.Skill{
		"Perception":         {Ranks: 5, Total: 11, Misc: 2, IsClassSkill: true},
		"Stealth":            {Total: 7},
		"Knowledge (arcana)": {Ranks: 1, Total: 4, IsClassSkill: true},
	}, keyed.Skills)

	listed := Normalize(json.RawMessage(`{"skills":[{"name":"Climb","ranks":2,"total":6},{"ranks":9}]}`))
	assert.Equal(t, map[string]models.Skill{"Climb": {Ranks: 2, Total: 6}}, listed.Skills)
}

func TestNormalize_FeatsArrayAndKeyedObject(t *testing.T) {
	arr := Normalize(json.RawMessage(`{"feats":["Power Attack",{"name":"Cleave"},"",{"level":3}]}`))
	assert.Equal(t, []string{"Power Attack", "Cleave"}, arr.Feats)

	keyed := Normalize(json.RawMessage(`{"feats":{"0":"Dodge","1":{"name":"Mobility"},"Spring Attack":true}}`))
	assert.Equal(t, []string{"Dodge", "Mobility", "Spring Attack"}, keyed.Feats)
}

func TestNormalize_SpecialAbilitiesMergedAndDeduplicated(t *testing.T) {
	doc := `{
		"specialAbilities": ["Darkvision", "Rage"],
		"classFeatures": {"a": "Rage", "b": "Fast Movement", "c": "rage"},
		"racialTraits": [{"name": "Darkvision"}, {"name": "Ferocity"}]
	}`
	got := Normalize(json.RawMessage(doc))
	assert.Equal(t, []string{"Darkvision", "Rage", "Fast Movement", "rage", "Ferocity"}, got.SpecialAbilities)
}

func TestNormalize_Weapons(t *testing.T) {
	doc := `{"equipment":{"weapons":[
		{"name":"Longsword","attackBonus":9,"damage":"1d8+4","critical":"19-20/x2","type":"S"},
		{"name":"Shortbow","attack":"+7","dmg":"1d6","crit":"x3","range":"60 ft.","notes":"masterwork"},
		{"damage":"1d4"},
		"Dagger",
		{"name":"Cursed Blade","toHit":-1}
	]}}`
	got := Normalize(json.RawMessage(doc))

	require.Len(t, got.Weapons, 4)
	assert.Equal(t, models.Weapon{Name: "Longsword", AttackBonus: "+9", Damage: "1d8+4", Critical: "19-20/x2", Type: "S"}, got.Weapons[0])
	assert.Equal(t, models.Weapon{Name: "Shortbow", AttackBonus: "+7", Damage: "1d6", Critical: "x3", Range: "60 ft.", Notes: "masterwork"}, got.Weapons[1])
	assert.Equal(t, models.Weapon{Name: "Dagger"}, got.Weapons[2])
	assert.Equal(t, "-1", got.Weapons[3].AttackBonus)
}

func TestNormalize_Armor(t *testing.T) {
	got := Normalize(json.RawMessage(`{"armor":{"name":"Chainmail","acBonus":6,"maxDex":2,"armorCheckPenalty":-5,"arcaneSpellFailure":"30%","type":"medium"}}`))
	require.NotNil(t, got.Armor)
	require.NotNil(t, got.Armor.MaxDex)
	assert.Equal(t, "Chainmail", got.Armor.Name)
	assert.Equal(t, 6, got.Armor.ACBonus)
	assert.Equal(t, 2, *got.Armor.MaxDex)
	assert.Equal(t, -5, got.Armor.CheckPenalty)
	assert.Equal(t, 30, got.Armor.SpellFailure)
	assert.Equal(t, "medium", got.Armor.Type)

	unlimited := Normalize(json.RawMessage(`{"armor":[{"name":"Robes","bonus":0}]}`))
	require.NotNil(t, unlimited.Armor)
	assert.Nil(t, unlimited.Armor.MaxDex)
}

func TestNormalize_Spells(t *testing.T) {
	keyed := Normalize(json.RawMessage(`{"spells":{
		"0": ["Detect Magic", "Light"],
		"level1": [{"name":"Magic Missile"}, "Shield"],
		"2nd": {"a":"Invisibility"},
		"10": ["Wish"],
		"notes": "none"
	}}`))
	assert.Equal(t, map[int][]string{
		0: {"Detect Magic", "Light"},
		1: {"Magic Missile", "Shield"},
		2: {"Invisibility"},
	}, keyed.Spells)

	listed := Normalize(json.RawMessage(`{"spellbook":[{"name":"Fireball","level":3},{"name":"Haste","level":"3"},{"name":"Lost"}]}`))
	assert.Equal(t, map[int][]string{3: {"Fireball", "Haste"}}, listed.Spells)
}

func TestNormalize_BasicInfo(t *testing.T) {
	got := Normalize(json.RawMessage(`{"characterInfo":{"race":{"name":"Half-Orc"},"alignment":"CN"},"deity":"Gorum","size":"Medium"}`))
	assert.Equal(t, models.BasicInfo{Race: "Half-Orc", Alignment: "CN", Deity: "Gorum", Size: "Medium"}, got.Info)
}

func TestResolveName(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		isCampaign bool
		want       string
	}{
		{"character info wins", `{"characterInfo":{"name":"Amiri"},"name":"Other"}`, false, "Amiri"},
		{"campaign name for gm record", `{"campaignInfo":{"name":"Rise of the Runelords"},"name":"GM"}`, true, "Rise of the Runelords"},
		{"campaign name ignored for player record", `{"campaignInfo":{"name":"Runelords"},"name":"Kyra"}`, false, "Kyra"},
		{"top level variant", `{"characterName":"Merisiel"}`, false, "Merisiel"},
		{"blank names fall back to id", `{"name":"  "}`, false, "character4"},
		{"empty doc falls back to id", `{}`, false, "character4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName(json.RawMessage(tt.doc), "character4", tt.isCampaign))
		})
	}
}

func TestResolveLastModified(t *testing.T) {
	bag := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, bag, ResolveLastModified(json.RawMessage(`{"lastModified":"2020-01-01T00:00:00Z"}`), &bag))

	got := ResolveLastModified(json.RawMessage(`{"lastModified":"2020-01-01T00:00:00Z"}`), nil)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), got)

	got = ResolveLastModified(json.RawMessage(`{"updatedAt":1700000000000}`), nil)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), got)

	assert.True(t, ResolveLastModified(json.RawMessage(`{}`), nil).IsZero())
}

func TestFirst_OrderedAccessors(t *testing.T) {
	root := gjson.Parse(`{"a":{"total":3},"b":4}`)
	assert.Equal(t, 4, First(root, 0, IntAt("missing"), IntAt("b"), IntAt("a")))
	assert.Equal(t, 3, First(root, 0, IntAt("a"), IntAt("b")))
	assert.Equal(t, 99, First(root, 99, IntAt("nope")))
}

func TestLeadingInt(t *testing.T) {
	for in, want := range map[string]int{"+3": 3, "-2": -2, "30 ft.": 30, " 12 ": 12} {
		got, ok := leadingInt(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "-", "+", "ft", "x12"} {
		_, ok := leadingInt(in)
		assert.False(t, ok, in)
	}
}
