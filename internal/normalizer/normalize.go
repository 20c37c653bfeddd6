// Package normalizer maps decoded character JSON of unknown shape onto the
// canonical attribute set.
//
// The provider schema has several historical shapes, and the account export,
// share-key export and campaign records each fill a different subset of
// fields. Every field is therefore read through an ordered list of candidate
// accessors; the first present, correctly typed value wins and everything
// else falls back to the field default. Normalize never fails.
package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"

	"character-sync/internal/models"

	"github.com/tidwall/gjson"
)

// Field defaults.
const (
	DefaultAbilityScore = 10
	DefaultLevel        = 1
	DefaultArmorClass   = 10
	DefaultSpeed        = 30
	DefaultCMD          = 10
	MaxSpellLevel       = 9
)

// Modifier returns the ability modifier for score, floor((score-10)/2).
func Modifier(score int) int {
	d := score - 10
	if d < 0 {
		return (d - 1) / 2
	}
	return d / 2
}

type abilityField struct {
	full string
	abbr string
	dst  func(*models.Abilities) *int
}

var abilityFields = []abilityField{
	{"strength", "str", func(a *models.Abilities) *int { return &a.Strength }},
	{"dexterity", "dex", func(a *models.Abilities) *int { return &a.Dexterity }},
	{"constitution", "con", func(a *models.Abilities) *int { return &a.Constitution }},
	{"intelligence", "int", func(a *models.Abilities) *int { return &a.Intelligence }},
	{"wisdom", "wis", func(a *models.Abilities) *int { return &a.Wisdom }},
	{"charisma", "cha", func(a *models.Abilities) *int { return &a.Charisma }},
}

// Normalize extracts the canonical attribute set from data.
func Normalize(data json.RawMessage) models.NormalizedCharacter {
	return NormalizeResult(gjson.ParseBytes(data))
}

// NormalizeResult is Normalize over an already parsed document.
func NormalizeResult(root gjson.Result) models.NormalizedCharacter {
	return models.NormalizedCharacter{
		Abilities:        extractAbilities(root),
		Level:            extractLevel(root),
		Combat:           extractCombat(root),
		Saves:            extractSaves(root),
		Skills:           extractSkills(root),
		Feats:            extractFeats(root),
		SpecialAbilities: extractSpecialAbilities(root),
		Weapons:          extractWeapons(root),
		Armor:            extractArmor(root),
		Spells:           extractSpells(root),
		Info:             extractInfo(root),
	}
}

func abilityAccessors(f abilityField) []Accessor[int] {
	upper := strings.ToUpper(f.abbr)
	accs := IntAtAny(
		"abilityScores."+f.full,
		"abilityScores."+f.abbr,
		"abilities."+f.full,
		"abilities."+f.abbr,
		"abilities."+upper,
		"stats."+f.abbr,
		f.full,
		f.abbr,
	)
	return append(accs, abilityFromList("abilities", f), abilityFromList("abilityScores", f))
}

// abilityFromList reads [{"name":"Strength","total":14}, ...] shapes.
func abilityFromList(path string, f abilityField) Accessor[int] {
	return func(root gjson.Result) (int, bool) {
		list := root.Get(path)
		if !list.IsArray() {
			return 0, false
		}
		var (
			score int
			found bool
		)
		list.ForEach(func(_, item gjson.Result) bool {
			name := strings.ToLower(strings.TrimSpace(item.Get("name").String()))
			if name == "" {
				name = strings.ToLower(strings.TrimSpace(item.Get("abbr").String()))
			}
			if name != f.full && name != f.abbr {
				return true
			}
			score, found = intOf(item)
			return !found
		})
		return score, found
	}
}

func extractAbilities(root gjson.Result) models.Abilities {
	var a models.Abilities
	for _, f := range abilityFields {
		*f.dst(&a) = First(root, DefaultAbilityScore, abilityAccessors(f)...)
	}
	return a
}

func extractLevel(root gjson.Result) int {
	accs := append(IntAtAny("characterInfo.level", "level", "totalLevel", "characterLevel"), classLevelSum)
	level := First(root, DefaultLevel, accs...)
	if level < 1 {
		return DefaultLevel
	}
	return level
}

// classLevelSum adds up per-class levels when no total level is stored.
func classLevelSum(root gjson.Result) (int, bool) {
	classes := root.Get("classes")
	if !classes.IsArray() && !classes.IsObject() {
		classes = root.Get("characterInfo.classes")
	}
	if !classes.IsArray() && !classes.IsObject() {
		return 0, false
	}
	total, found := 0, false
	classes.ForEach(func(_, c gjson.Result) bool {
		if n, ok := intOf(c.Get("level")); ok {
			total += n
			found = true
		} else if n, ok := intOf(c); ok && c.Type == gjson.Number {
			total += n
			found = true
		}
		return true
	})
	return total, found
}

func extractCombat(root gjson.Result) models.Combat {
	maxHP := First(root, 0, IntAtAny(
		"combat.hp.max", "combat.hitPoints.max", "hitPoints.max", "hitPoints.total",
		"hp.max", "maxHp", "maxHP", "hp",
	)...)

	return models.Combat{
		MaxHP: maxHP,
		// a sheet without current HP is treated as unhurt
		CurrentHP: First(root, maxHP, IntAtAny(
			"combat.hp.current", "combat.hitPoints.current", "hitPoints.current",
			"hp.current", "currentHp", "currentHP",
		)...),
		TempHP: First(root, 0, IntAtAny(
			"combat.hp.temp", "combat.hitPoints.temp", "hitPoints.temp",
			"hp.temp", "tempHp", "tempHP",
		)...),
		ArmorClass: First(root, DefaultArmorClass, IntAtAny(
			"combat.ac", "combat.armorClass", "armorClass", "ac", "AC",
		)...),
		TouchAC: First(root, DefaultArmorClass, IntAtAny(
			"combat.ac.touch", "combat.armorClass.touch", "armorClass.touch",
			"ac.touch", "touchAc", "touchAC",
		)...),
		FlatFootedAC: First(root, DefaultArmorClass, IntAtAny(
			"combat.ac.flatFooted", "combat.armorClass.flatFooted", "armorClass.flatFooted",
			"ac.flatFooted", "flatFootedAc", "flatFootedAC",
		)...),
		Initiative: First(root, 0, IntAtAny(
			"combat.initiative", "initiative", "init",
		)...),
		Speed: First(root, DefaultSpeed, IntAtAny(
			"combat.speed", "speed.base", "speed.land", "speed", "baseSpeed",
		)...),
		BaseAttackBonus: First(root, 0, IntAtAny(
			"combat.bab", "combat.baseAttackBonus", "baseAttackBonus", "bab",
		)...),
		CombatManeuverBonus: First(root, 0, IntAtAny(
			"combat.cmb", "cmb", "combatManeuverBonus",
		)...),
		CombatManeuverDef: First(root, DefaultCMD, IntAtAny(
			"combat.cmd", "cmd", "combatManeuverDefense",
		)...),
	}
}

func saveAccessors(full, short string) []Accessor[int] {
	return IntAtAny(
		"saves."+full, "saves."+short,
		"savingThrows."+full, "savingThrows."+short,
		"combat.saves."+full,
		full, short,
	)
}

func extractSaves(root gjson.Result) models.Saves {
	return models.Saves{
		Fortitude: First(root, 0, saveAccessors("fortitude", "fort")...),
		Reflex:    First(root, 0, saveAccessors("reflex", "ref")...),
		Will:      First(root, 0, saveAccessors("will", "will")...),
	}
}

func extractSkills(root gjson.Result) map[string]models.Skill {
	skills := make(map[string]models.Skill)
	src, ok := firstCollection(root, "skills", "characterInfo.skills", "skillList")
	if !ok {
		return skills
	}

	add := func(name string, v gjson.Result) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		skills[name] = skillOf(v)
	}

	if src.IsArray() {
		src.ForEach(func(_, item gjson.Result) bool {
			add(item.Get("name").String(), item)
			return true
		})
	} else {
		src.ForEach(func(key, item gjson.Result) bool {
			add(key.String(), item)
			return true
		})
	}
	return skills
}

func skillOf(v gjson.Result) models.Skill {
	if v.Type == gjson.Number || v.Type == gjson.String {
		total, _ := intOf(v)
		return models.Skill{Total: total}
	}
	return models.Skill{
		Ranks:        First(v, 0, IntAtAny("ranks", "rank")...),
		Total:        First(v, 0, IntAtAny("total", "value", "bonus")...),
		Misc:         First(v, 0, IntAtAny("misc", "miscBonus", "other")...),
		IsClassSkill: First(v, false, BoolAt("isClassSkill"), BoolAt("classSkill"), BoolAt("cs")),
	}
}

func firstCollection(root gjson.Result, paths ...string) (gjson.Result, bool) {
	v := First(root, gjson.Result{}, CollectionAtAny(paths...)...)
	return v, v.Exists()
}

func extractFeats(root gjson.Result) []string {
	src, ok := firstCollection(root, "feats", "characterInfo.feats", "featList")
	names := []string{}
	if ok {
		names = append(names, NameList(src)...)
	}
	return names
}

// specialAbilitySources are merged in order.
var specialAbilitySources = [][]string{
	{"specialAbilities", "characterInfo.specialAbilities"},
	{"classFeatures", "characterInfo.classFeatures"},
	{"racialTraits", "characterInfo.racialTraits"},
}

func extractSpecialAbilities(root gjson.Result) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, paths := range specialAbilitySources {
		if src, ok := firstCollection(root, paths...); ok {
			out = appendUnique(out, seen, NameList(src)...)
		}
	}
	return out
}

func extractWeapons(root gjson.Result) []models.Weapon {
	weapons := []models.Weapon{}
	src, ok := firstCollection(root, "weapons", "equipment.weapons", "attacks", "combat.attacks")
	if !ok {
		return weapons
	}
	src.ForEach(func(_, item gjson.Result) bool {
		if w, ok := weaponOf(item); ok {
			weapons = append(weapons, w)
		}
		return true
	})
	return weapons
}

func weaponOf(v gjson.Result) (models.Weapon, bool) {
	if v.Type == gjson.String {
		name := strings.TrimSpace(v.Str)
		return models.Weapon{Name: name}, name != ""
	}
	if !v.IsObject() {
		return models.Weapon{}, false
	}
	name := First(v, "", StringAtAny("name", "weapon", "title")...)
	if name == "" {
		return models.Weapon{}, false
	}
	return models.Weapon{
		Name:        name,
		AttackBonus: First(v, "", signedAtAny("attackBonus", "attack", "toHit", "bonus")...),
		Damage:      First(v, "", StringAtAny("damage", "dmg")...),
		Critical:    First(v, "", StringAtAny("critical", "crit")...),
		Range:       First(v, "", StringAtAny("range", "rangeIncrement")...),
		Type:        First(v, "", StringAtAny("type", "damageType")...),
		Notes:       First(v, "", StringAtAny("notes", "special")...),
	}, true
}

func signedAtAny(paths ...string) []Accessor[string] {
	out := make([]Accessor[string], 0, len(paths))
	for _, p := range paths {
		p := p
		out = append(out, func(root gjson.Result) (string, bool) {
			return signedString(root.Get(p))
		})
	}
	return out
}

func extractArmor(root gjson.Result) *models.Armor {
	src := First(root, gjson.Result{}, CollectionAtAny("armor", "equipment.armor", "defense.armor")...)
	if src.IsArray() {
		src = src.Get("0")
	}
	if !src.IsObject() {
		return nil
	}

	armor := &models.Armor{
		Name:         First(src, "", StringAtAny("name")...),
		ACBonus:      First(src, 0, IntAtAny("acBonus", "bonus", "ac", "armorBonus")...),
		CheckPenalty: First(src, 0, IntAtAny("checkPenalty", "armorCheckPenalty", "acp")...),
		SpellFailure: First(src, 0, IntAtAny("spellFailure", "arcaneSpellFailure", "asf")...),
		Type:         First(src, "", StringAtAny("type", "category")...),
	}
	for _, p := range []string{"maxDex", "maxDexBonus", "maxDexterity"} {
		if n, ok := intOf(src.Get(p)); ok {
			armor.MaxDex = &n
			break
		}
	}
	if armor.Name == "" && armor.ACBonus == 0 && armor.Type == "" {
		return nil
	}
	return armor
}

func extractSpells(root gjson.Result) map[int][]string {
	spells := make(map[int][]string)
	src, ok := firstCollection(root, "spells", "spellbook", "spellsKnown", "characterInfo.spells")
	if !ok {
		return spells
	}

	add := func(level int, names []string) {
		if level < 0 || level > MaxSpellLevel || len(names) == 0 {
			return
		}
		spells[level] = append(spells[level], names...)
	}

	if src.IsArray() {
		// [{"name":"Magic Missile","level":1}, ...]
		src.ForEach(func(_, item gjson.Result) bool {
			level, ok := intOf(item.Get("level"))
			if !ok {
				return true
			}
			if name, ok := stringOf(item); ok {
				add(level, []string{name})
			}
			return true
		})
		return spells
	}

	// {"0": [...], "level1": [...], "2nd": {...}}
	src.ForEach(func(key, item gjson.Result) bool {
		if level, ok := spellLevelKey(key.String()); ok {
			add(level, NameList(item))
		}
		return true
	})
	return spells
}

func spellLevelKey(key string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "cantrips", "orisons", "knacks":
		return 0, true
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, key)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func extractInfo(root gjson.Result) models.BasicInfo {
	return models.BasicInfo{
		Race:      First(root, "", StringAtAny("characterInfo.race", "race", "ancestry")...),
		Alignment: First(root, "", StringAtAny("characterInfo.alignment", "alignment")...),
		Deity:     First(root, "", StringAtAny("characterInfo.deity", "deity")...),
		Size:      First(root, "", StringAtAny("characterInfo.size", "size")...),
	}
}
